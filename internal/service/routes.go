package service

import (
	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/router"
)

// Handler names as they appear in logs and outcomes.
const (
	HandlerCreateUser   = "users.create_from_event"
	HandlerUpdateUser   = "users.update_from_event"
	HandlerAutoLinkUser = "models.auto_link_user"
)

// Routes is the handler table for every event type this service consumes.
// Types with an empty chain are acknowledged without side effects.
func Routes(users UserEventHandler, linker ModelLinker) router.Routes {
	return router.Routes{
		event.UserCreated: {
			{Name: HandlerCreateUser, Fn: users.CreateFromEvent},
			{Name: HandlerAutoLinkUser, Fn: linker.AutoLinkUser},
		},
		event.UserUpdated: {
			{Name: HandlerUpdateUser, Fn: users.UpdateFromEvent},
		},
		event.UserDeleted:  nil,
		event.ModelCreated: nil,
		event.ModelUpdated: nil,
	}
}
