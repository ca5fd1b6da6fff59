package instance

import "os"

// GetID returns the running instance identifier or a default value. The
// platform sets INSTANCE_ID; DYNO covers Heroku-style deploys.
func GetID() string {
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		return id
	}
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	return "local"
}
