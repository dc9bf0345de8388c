// Package ledger stores the deployment history of a database.
//
// Every attempt to apply a change appends one row to a MergeTree table living
// inside the database being deployed, so a cloned database carries its history
// with it. Rows are never rewritten apart from the status of the attempt's own
// row, which moves from in_progress to success or failed.
//
// Idempotency is enforced at two levels: RecordSet answers whether a change id
// already succeeded (from the rows fetched at the start of the run plus those
// applied during it), and RecordAttempt refuses to start an attempt for an id
// that already has a success row.
//
// Example usage:
//
//	l := ledger.New(client, "changedeploy", "history")
//
//	applied, err := l.FetchSuccessful(ctx, "analytics")
//	if err != nil {
//		return err
//	}
//	set := ledger.NewRecordSet(applied)
//
//	if set.IsDeployable(meta.ID) {
//		rec := &ledger.Record{ID: meta.ID, Author: meta.Author}
//		if err := l.RecordAttempt(ctx, "analytics", rec); err != nil {
//			return err
//		}
//		// ... apply the change ...
//		_ = l.UpdateStatus(ctx, "analytics", rec, ledger.StatusSuccess)
//	}
package ledger
