package outbox

// JSON Schema documents registered for each change event type. The subject
// stored on the outbox row decides the registry subject name; these bodies
// are only registered once per subject.
var changeSchemas = map[string]string{
	"activity.created": `{
  "type": "object",
  "title": "ActivityCreated",
  "properties": {
    "activity_id": {"type": "string"},
    "owner_id": {"type": "string"},
    "text": {"type": "string"},
    "is_completed": {"type": "boolean"},
    "created_at": {"type": "string", "format": "date-time"},
    "comment": {"type": "string"},
    "priority": {"type": "string", "enum": ["high", "medium", "low"]},
    "starts_at": {"type": "string", "format": "date-time"},
    "ends_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "owner_id", "text", "is_completed", "created_at"],
  "additionalProperties": false
}`,

	"activity.completion_changed": `{
  "type": "object",
  "title": "ActivityCompletionChanged",
  "properties": {
    "activity_id": {"type": "string"},
    "owner_id": {"type": "string"},
    "is_completed": {"type": "boolean"},
    "completed_at": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "owner_id", "is_completed", "occurred_at"],
  "additionalProperties": false
}`,

	"activity.deleted": `{
  "type": "object",
  "title": "ActivityDeleted",
  "properties": {
    "activity_id": {"type": "string"},
    "owner_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "owner_id", "occurred_at"],
  "additionalProperties": false
}`,
}
