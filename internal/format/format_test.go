package format

import (
	"reflect"
	"testing"

	"github.com/bft-labs/sraship/internal/domain"
)

func TestFormatters(t *testing.T) {
	read := domain.Read{Name: "SRR1.7", Sequence: "ACGTN", Quality: "IIII#"}

	tests := []struct {
		name string
		want []string
	}{
		{"fastq", []string{"@SRR1.7", "ACGTN", "+", "IIII#"}},
		{"fasta", []string{">SRR1.7", "ACGTN"}},
		{"tsv", []string{"SRR1.7\tACGTN\tIIII#"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.name, err)
			}
			if f.Name() != tt.name {
				t.Errorf("Name() = %q", f.Name())
			}
			if f.LinesPerRecord() != len(tt.want) {
				t.Fatalf("LinesPerRecord() = %d, want %d", f.LinesPerRecord(), len(tt.want))
			}
			got := make([]string, f.LinesPerRecord())
			f.Format(got, read)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	if _, err := Lookup("bam"); err == nil {
		t.Error("Lookup(bam) should fail")
	}
}

func TestNames(t *testing.T) {
	want := []string{"fasta", "fastq", "tsv"}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
