package models

// Delivery channels a Job or Message can use.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)
