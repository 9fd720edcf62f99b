package reservations

// TopicReservationEvents carries every reservation and room-block event.
// Messages are keyed by aggregate id (reservation id, or room id for
// maintenance events), so all events of one aggregate keep their commit
// order on the wire.
const TopicReservationEvents = "pms.reservation.events"
