// Package fills provides the asynchronous submission pipeline in front of the
// settler: fillers enqueue fill jobs over the API, workers consume them and
// drive settlement, and the job store keeps a queryable record of every
// attempt and its outcome. Retries are safe because the settler's replay guard
// rejects duplicate settlement of the same intent.
package fills
