package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic). The engine
// only produces these; delivery to clients is the notification layer's
// concern.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the scheduling engine.
const (
	EventAppointmentCreated   = "scheduling.appointment.created.v1"
	EventAppointmentUpdated   = "scheduling.appointment.updated.v1"
	EventAppointmentCancelled = "scheduling.appointment.cancelled.v1"
	EventSeriesCreated        = "scheduling.series.created.v1"
)
