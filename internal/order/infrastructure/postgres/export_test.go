package postgres

// ReadSnapshot exposes the read transaction used by Get and List.
var ReadSnapshot = (*Repository).readSnapshot
