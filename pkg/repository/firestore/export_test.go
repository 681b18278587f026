package firestore

import "cloud.google.com/go/firestore"

// BulkJob is exported for testing
type BulkJob = bulkJob

// WaitBulkJobs is exported for testing
func WaitBulkJobs(jobs []BulkJob) (int, error) {
	return waitBulkJobs(jobs)
}

var _ BulkJob = &firestore.BulkWriterJob{}
