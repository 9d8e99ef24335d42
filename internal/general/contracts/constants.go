package contracts

// Exchanges
const (
	ExchangeRideTopic   = "ride_topic"
	ExchangeDriverTopic = "driver_topic"
)

// Queues
const (
	QueueRideStatus      = "ride_status"
	QueueOfferBatches    = "offer_batches"
	QueueDriverResponses = "driver_responses"
	QueueDriverStatus    = "driver_status"
)

// Routing patterns
const (
	RouteRideStatusPrefix   = "ride.status."     // {status}
	RouteOfferBatchPrefix   = "ride.offers."     // {ride_id}
	RouteDriverRespPrefix   = "driver.response." // {ride_id}
	RouteDriverStatusPrefix = "driver.status."   // {driver_id}
)
