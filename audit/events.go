package audit

// Audit event actions. Each constant corresponds to one ext lifecycle
// hook and becomes the Action field of the audit event.
const (
	ActionTransitionApplied  = "job.transition_applied"
	ActionTransitionRejected = "job.transition_rejected"
	ActionTechnicianClaimed  = "technician.claimed"
	ActionTechnicianReleased = "technician.released"
	ActionGeofenceTriggered  = "job.geofence_triggered"
)

// Audit event categories group related actions.
const (
	CategoryJob        = "fieldops.job"
	CategoryTechnician = "fieldops.technician"
	CategoryGeofence   = "fieldops.geofence"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob        = "job"
	ResourceTechnician = "technician"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionTransitionApplied,
		ActionTransitionRejected,
		ActionTechnicianClaimed,
		ActionTechnicianReleased,
		ActionGeofenceTriggered,
	}
}
