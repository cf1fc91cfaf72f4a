package occlusion

const (
	ErrTypeObjectNotFound     = "object_not_found"
	ErrTypeObjectAlreadyAdded = "object_already_added"
	ErrTypeStaticObject       = "static_object"
	ErrTypeUnknownCategory    = "unknown_category"
)
