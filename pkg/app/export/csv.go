// Package export writes an actor's ledger records as CSV.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"supplychain/pkg/domain/model"
)

var header = []string{"productId", "fromState", "toState", "actor", "timestamp", "location"}

type RecordSource interface {
	RecordsByActor(ctx context.Context, actor string) ([]model.TransactionRecord, error)
}

// ActorRecords writes every record signed by actor to w in ledger order.
func ActorRecords(ctx context.Context, source RecordSource, actor string, w io.Writer) error {
	records, err := source.RecordsByActor(ctx, actor)
	if err != nil {
		return err
	}
	return WriteRecords(w, records)
}

func WriteRecords(w io.Writer, records []model.TransactionRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, record := range records {
		row := []string{
			strconv.FormatInt(record.ProductID, 10),
			record.FromState.String(),
			record.ToState.String(),
			record.Actor,
			record.Timestamp.UTC().Format(time.RFC3339Nano),
			record.Location,
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "write record %d", record.Seq)
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flush csv")
}
