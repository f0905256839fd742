package service

import "errors"

var (
	// ErrRideNotFound is returned when a ride does not exist or is not visible to the caller.
	ErrRideNotFound = errors.New("ride not found")

	// ErrInvalidStateTransition is returned when the ride's status does not allow the operation,
	// including when a concurrent update won the race.
	ErrInvalidStateTransition = errors.New("invalid ride state transition")

	// ErrNoActiveRide is returned when the caller has no ride in progress.
	ErrNoActiveRide = errors.New("no active ride")

	// ErrNotRideParticipant is returned when the caller is not the ride's rider or assigned driver.
	ErrNotRideParticipant = errors.New("not a participant of this ride")

	// ErrForbiddenRole is returned when the caller's role may not perform the operation.
	ErrForbiddenRole = errors.New("operation not allowed for this role")

	// ErrInvalidOTP is returned when the start code does not match.
	ErrInvalidOTP = errors.New("Invalid OTP")

	// ErrInvalidRating is returned when a rating is outside 1 to 5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrRideAlreadyRated is returned when a ride already carries a rating.
	ErrRideAlreadyRated = errors.New("ride already rated")

	// ErrDriverHasActiveRide is returned when a driver accepts while committed to another ride.
	ErrDriverHasActiveRide = errors.New("driver already has an active ride")

	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidPickupLocation is returned when pickup coordinates are invalid.
	ErrInvalidPickupLocation = errors.New("invalid pickup location")

	// ErrInvalidDestinationLocation is returned when destination coordinates are invalid.
	ErrInvalidDestinationLocation = errors.New("invalid destination location")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidPaymentMethod is returned when payment method is invalid.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidTrafficLevel is returned when the traffic multiplier is outside 0.5 to 3.0.
	ErrInvalidTrafficLevel = errors.New("traffic level must be between 0.5 and 3.0")

	// ErrInvalidRole is returned when a profile names an unknown role.
	ErrInvalidRole = errors.New("invalid role")

	// ErrIncompleteProfile is returned when a profile lacks a name.
	ErrIncompleteProfile = errors.New("name and role are required")

	// ErrInvalidPlace is returned when a saved place lacks a name or valid coordinates.
	ErrInvalidPlace = errors.New("invalid place")

	// ErrNotPhoneToken is returned when a phone link token carries no phone number.
	ErrNotPhoneToken = errors.New("Token is not from phone authentication")

	// ErrAvatarRequired is returned when an avatar update is empty.
	ErrAvatarRequired = errors.New("Avatar is required")

	// ErrDriversOnly is reported to sockets that try to go online without a driver role.
	ErrDriversOnly = errors.New("Only drivers can go online")

	// ErrChatNotFound is returned when a support chat does not exist or has expired.
	ErrChatNotFound = errors.New("Chat not found")

	// ErrChatEnded is returned when writing to a closed support chat.
	ErrChatEnded = errors.New("Cannot send messages to ended chats")

	// ErrNotChatParticipant is returned when the caller neither owns the chat nor is staff.
	ErrNotChatParticipant = errors.New("Unauthorized")

	// ErrEmptyMessage is returned when a support message has no text.
	ErrEmptyMessage = errors.New("message is required")
)
