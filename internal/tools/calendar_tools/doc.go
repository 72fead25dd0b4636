// Package calendar_tools exposes Google Calendar as the "calendar"
// integration.
//
// Tools:
//   - list_events: upcoming events on the primary calendar
//   - create_event: create an event on the primary calendar
//
// Times are RFC 3339. A timestamp without an offset is read as UTC.
package calendar_tools
