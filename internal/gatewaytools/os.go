package gatewaytools

import (
	"context"

	"github.com/mama-run/mama/internal/identity"
	"github.com/mama-run/mama/pkg/protocol"
)

// osDispatch handles the os_* family. Mutating operations (add_bot,
// set_permissions, restart_bot, stop_bot) require the viewer platform;
// read operations (get_config, list_bots) are open to every role but
// mask sensitive fields unless the caller is on the viewer platform
// (spec §4.8: "os_get_config and os_list_bots are not mutators").
func (e *Executor) osDispatch(ctx context.Context, name string, args map[string]interface{}, actx identity.AgentContext) Result {
	if e.os == nil {
		return failError("os tool unavailable")
	}
	isViewer := actx.Platform == protocol.PlatformViewer

	if osMutators[name] && !isViewer {
		return failError("Permission denied: os_* mutators require the viewer source")
	}

	switch name {
	case ToolOSAddBot:
		data, err := e.os.AddBot(ctx, args)
		if err != nil {
			return failError(err.Error())
		}
		return ok2(data)

	case ToolOSSetPermissions:
		data, err := e.os.SetPermissions(ctx, args)
		if err != nil {
			return failError(err.Error())
		}
		return ok2(data)

	case ToolOSGetConfig:
		data, err := e.os.GetConfig(ctx, !isViewer)
		if err != nil {
			return failError(err.Error())
		}
		return ok2(data)

	case ToolOSListBots:
		data, err := e.os.ListBots(ctx, !isViewer)
		if err != nil {
			return failError(err.Error())
		}
		return ok2(data)

	case ToolOSRestartBot:
		if err := e.os.RestartBot(ctx, args); err != nil {
			return failError(err.Error())
		}
		return ok2(nil)

	case ToolOSStopBot:
		if err := e.os.StopBot(ctx, args); err != nil {
			return failError(err.Error())
		}
		return ok2(nil)

	default:
		return failError("unhandled os tool " + name)
	}
}
