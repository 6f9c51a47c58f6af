package pdf

import (
	"context"
	"testing"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
)

func TestTransformRejectsNonPDF(t *testing.T) {
	tr := New(chunking.NewSplitter(512, 128))

	cases := map[string][]byte{
		"empty":     nil,
		"plaintext": []byte("this is not a pdf"),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n<<"),
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Transform(context.Background(), blob, domain.DocumentMetadata{FileName: "doc.pdf"})
			if err == nil {
				t.Fatalf("expected error")
			}
			class := domain.Classify(err)
			if class.Code != domain.CodeTransformationError || class.SubCode != domain.SubCodeCorruptedInput {
				t.Fatalf("expected CORRUPTED_INPUT, got %+v (%v)", class, err)
			}
		})
	}
}
