package models

// Audit labels for state-changing operations.
const (
	AuditRepoProvision = "RepositoryProvision"
	AuditRepoRollback  = "RepositoryRollback"
	AuditGradeAutoTest = "GradeAutoTest"
	AuditPersonCreate  = "PersonCreate"
)

// AuditEvent records who changed what. Before/After hold JSON snapshots of the
// affected record, either may be empty.
type AuditEvent struct {
	ID        string `db:"id" json:"id"`
	Label     string `db:"label" json:"label"`
	Timestamp int64  `db:"timestamp" json:"timestamp"`
	PersonID  string `db:"person_id" json:"personId"`
	Before    string `db:"before_state" json:"before"`
	After     string `db:"after_state" json:"after"`
	Detail    string `db:"detail" json:"detail"`
}
