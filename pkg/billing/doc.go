// Package billing runs the monthly invoicing job.
//
// For every client with at least one contract the job prices each contract
// over the part of the current month it was valid, sums the lines into one
// invoice and stores it together with its archival document. Each client is
// its own unit of work: it gets its own transaction and its own timeout, and
// a failure is logged and counted in the Report without stopping the run.
//
// At most one invoice exists per client and month. A client that already has
// one is skipped, so re-running the job for a month is safe.
//
//	job := billing.NewJob(contractStore, lifecycle,
//		billing.WithVATRate(decimal.NewFromInt(21)),
//		billing.WithConcurrency(4, 30*time.Second),
//		billing.WithLogger(logger),
//	)
//	report, err := job.Run(ctx, time.Now())
//	if err != nil {
//		return err
//	}
//	logger.Info(report.Summary())
package billing
