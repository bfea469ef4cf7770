package domain

// Tables are the process-wide tables created by AutoMigrate. Tenant-scoped
// tables are managed by the store package.
var Tables = []interface{}{
	&Session{},
}
