// Package archive provides record archive bindings for the paired record source.
//
// [Dir] serves accessions from split FASTQ files on local disk, the layout
// produced by fasterq-dump --split-files:
//
//	<root>/<accession>_1.fastq[.gz|.zst]
//	<root>/<accession>_2.fastq[.gz|.zst]
//
// [Memory] serves accessions from records held in memory.
package archive
