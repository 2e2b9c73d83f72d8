package port

import "context"

// DocumentStorage keeps uploaded invoice documents until OCR and signature steps need them
type DocumentStorage interface {
	Save(ctx context.Context, key string, content []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DocumentKey names the stored upload of an invoice
func DocumentKey(invoiceID string) string {
	return invoiceID + ".pdf"
}
