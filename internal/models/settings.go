package models

// Well-known keys of the system_settings table
const (
	SettingSecret      = "enc_key"
	SettingPairingCode = "pairing_code"
	SettingBoundChat   = "linked_chat_id"
)
