package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

const defaultReceiptPrefix = "receipts"

// archivedReceipt is the JSON document stored per confirmed fill.
type archivedReceipt struct {
	Fill       domain.Fill    `json:"fill"`
	Receipt    domain.Receipt `json:"receipt"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// ReceiptArchiver stores receipts of confirmed fills under
// {prefix}/YYYY/MM/DD/{fill id}.json.
type ReceiptArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
}

// NewReceiptArchiver creates an archiver. reader may be nil when receipts
// are only written.
func NewReceiptArchiver(writer domain.BlobWriter, reader domain.BlobReader, prefix string) *ReceiptArchiver {
	if prefix == "" {
		prefix = defaultReceiptPrefix
	}
	return &ReceiptArchiver{writer: writer, reader: reader, prefix: prefix}
}

// ReceiptPath returns the object key for a fill's receipt.
func (a *ReceiptArchiver) ReceiptPath(fill domain.Fill) string {
	ts := fill.StartedAt
	if fill.CompletedAt != nil {
		ts = *fill.CompletedAt
	}
	ts = ts.UTC()
	return path.Join(a.prefix, ts.Format("2006"), ts.Format("01"), ts.Format("02"), fill.ID+".json")
}

// Archive uploads the fill's receipt and returns its key. A receipt that is
// already stored is left as is. Fills without a receipt are rejected.
func (a *ReceiptArchiver) Archive(ctx context.Context, fill domain.Fill) (string, error) {
	if fill.Receipt == nil {
		return "", fmt.Errorf("s3blob: archive fill %s: no receipt", fill.ID)
	}

	key := a.ReceiptPath(fill)
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, key)
		if err != nil {
			return "", err
		}
		if exists {
			return key, nil
		}
	}

	doc := archivedReceipt{
		Fill:       fill,
		Receipt:    *fill.Receipt,
		ArchivedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal receipt %s: %w", fill.ID, err)
	}

	if err := a.writer.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// Fetch returns the archived receipt document for a fill as raw JSON.
func (a *ReceiptArchiver) Fetch(ctx context.Context, fill domain.Fill) ([]byte, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: fetch receipt %s: %w", fill.ID, domain.ErrNotFound)
	}
	body, err := a.reader.Get(ctx, a.ReceiptPath(fill))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read receipt %s: %w", fill.ID, err)
	}
	return data, nil
}
