package outbox

const activityEventsSchema = `{
  "type": "object",
  "title": "ActivityEvent",
  "oneOf": [
    {
      "title": "ActivityLogged",
      "properties": {
        "activity_id": {"type": "string"},
        "user_id": {"type": "string"},
        "activity_type_id": {"type": "string"},
        "duration_minutes": {"type": "integer", "minimum": 1},
        "points_per_minute": {"type": "string"},
        "points_earned": {"type": "integer", "minimum": 0},
        "activity_date": {"type": "string", "format": "date-time"},
        "logged_at": {"type": "string", "format": "date-time"}
      },
      "required": ["activity_id", "user_id", "activity_type_id", "duration_minutes", "points_per_minute", "points_earned", "activity_date", "logged_at"],
      "additionalProperties": false
    },
    {
      "title": "ActivityVoided",
      "properties": {
        "activity_id": {"type": "string"},
        "user_id": {"type": "string"},
        "points_earned": {"type": "integer", "minimum": 0},
        "reason": {"type": "string"},
        "voided_by": {"type": "string"},
        "voided_at": {"type": "string", "format": "date-time"}
      },
      "required": ["activity_id", "user_id", "points_earned", "voided_by", "voided_at"],
      "additionalProperties": false
    }
  ]
}`

const teamEventsSchema = `{
  "type": "object",
  "title": "TeamMembershipChanged",
  "properties": {
    "team_id": {"type": "string"},
    "user_id": {"type": "string"},
    "member_count": {"type": "integer", "minimum": 0},
    "max_members": {"type": "integer", "minimum": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["team_id", "user_id", "member_count", "max_members", "occurred_at"],
  "additionalProperties": false
}`
