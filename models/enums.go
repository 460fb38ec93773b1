package models

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "Delivered"
	DeliveryStatusInTransit DeliveryStatus = "In Transit"
	DeliveryStatusCanceled  DeliveryStatus = "Canceled"
)

// Marketplace exports occasionally carry statuses outside this set ("Cancelled",
// "Returned", ...). They are stored verbatim; reporting buckets anything that is
// neither Delivered nor In Transit with the cancellations.
func (s DeliveryStatus) IsKnown() bool {
	switch s {
	case DeliveryStatusDelivered, DeliveryStatusInTransit, DeliveryStatusCanceled:
		return true
	}
	return false
}

type PlatformName string

const (
	PlatformFlipkart PlatformName = "Flipkart"
	PlatformAmazon   PlatformName = "Amazon"
	PlatformMeesho   PlatformName = "Meesho"
	PlatformMyntra   PlatformName = "Myntra"
)

func (p PlatformName) IsKnown() bool {
	switch p {
	case PlatformFlipkart, PlatformAmazon, PlatformMeesho, PlatformMyntra:
		return true
	}
	return false
}
