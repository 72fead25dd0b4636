// Package logging holds the slog attribute helpers and handler setup used
// across inboxgate.
//
// Operational logs never carry raw user ids; UserHash replaces them with a
// stable pseudonym so entries for one user still correlate:
//
//	logger.Info("pending action created",
//	    logging.UserHash(userID),
//	    logging.Integration("gmail"),
//	    logging.ActionID(id))
//
// New builds the process logger from a level name and a format (text or
// json). Audit records live in the instrumentation package.
package logging
