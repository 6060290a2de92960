package api

// Amounts cross the wire as integer minor units, never floats.

const movementSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["account", "amount"],
  "properties": {
    "account": {"type": "string", "minLength": 1, "maxLength": 64},
    "amount": {"type": "integer", "exclusiveMinimum": 0}
  }
}`

const transferSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["from", "to", "amount"],
  "properties": {
    "from": {"type": "string", "minLength": 1, "maxLength": 64},
    "to": {"type": "string", "minLength": 1, "maxLength": 64},
    "amount": {"type": "integer", "exclusiveMinimum": 0}
  }
}`

const openAccountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["number", "owner_id"],
  "properties": {
    "number": {"type": "string", "minLength": 1, "maxLength": 32},
    "owner_id": {"type": "string", "minLength": 1, "maxLength": 64},
    "initial_balance": {"type": "integer", "minimum": 0}
  }
}`

const customerSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["document", "first_name", "last_name"],
  "properties": {
    "document": {"type": "string", "minLength": 1, "maxLength": 32},
    "first_name": {"type": "string", "minLength": 1, "maxLength": 100},
    "last_name": {"type": "string", "minLength": 1, "maxLength": 100},
    "email": {"type": "string", "maxLength": 255},
    "address": {"type": "string", "maxLength": 255}
  }
}`
