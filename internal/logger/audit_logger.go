// Package logger provides audit logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging for steward-visible actions.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogOfficialPublish logs a published official result version.
func (al *AuditLogger) LogOfficialPublish(sessionID string, version, results, awards int, scheme string) {
	al.WithFields(logrus.Fields{
		"session_id": sessionID,
		"version":    version,
		"results":    results,
		"awards":     awards,
		"scheme":     scheme,
	}).Info("Official results published")
}

// LogEntityMerge logs a merge of a duplicate durable entity into its survivor.
func (al *AuditLogger) LogEntityMerge(kind, fromID, intoID, name string) {
	al.WithFields(logrus.Fields{
		"kind":    kind,
		"from_id": fromID,
		"into_id": intoID,
		"name":    name,
	}).Warn("Duplicate entity merged")
}

// LogSessionStatusChange logs a session status transition.
func (al *AuditLogger) LogSessionStatusChange(sessionID, name, oldStatus, newStatus string) {
	al.WithFields(logrus.Fields{
		"session_id": sessionID,
		"session":    name,
		"old_status": oldStatus,
		"new_status": newStatus,
	}).Info("Session status changed")
}

// LogPenaltyApplied logs a penalty folded into an official projection.
func (al *AuditLogger) LogPenaltyApplied(sessionID, driverID, penaltyType string, value interface{}) {
	al.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"driver_id":    driverID,
		"penalty_type": penaltyType,
		"value":        value,
	}).Info("Penalty applied")
}

// LogPointSchemeSeeded logs lazy creation of a missing point scheme.
func (al *AuditLogger) LogPointSchemeSeeded(scheme string, positions int) {
	al.WithFields(logrus.Fields{
		"scheme":    scheme,
		"positions": positions,
	}).Warn("Point scheme seeded with defaults")
}
