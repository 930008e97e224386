package model

// FieldType declares how a ping format field value renders in embeds.
type FieldType string

const (
	FieldText FieldType = "text"
	FieldBool FieldType = "bool"
)

// PingFormatField is one configurable line of a category's notification
// embed. Fields render in ascending Priority order; empty values are
// omitted.
type PingFormatField struct {
	ID           int64
	PingFormatID int64
	Name         string
	Priority     int
	DefaultValue string
	Type         FieldType
}
