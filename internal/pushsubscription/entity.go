package pushsubscription

import "time"

type Subscription struct {
	ID        string    `json:"id" yaml:"id"`
	Endpoint  string    `json:"endpoint" yaml:"endpoint"`
	P256dhKey string    `json:"p256dh_key" yaml:"p256dh_key"`
	AuthKey   string    `json:"auth_key" yaml:"auth_key"`
	Operator  string    `json:"operator,omitempty" yaml:"operator,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
