package main

import (
	"github.com/charmbracelet/log"

	"github.com/whisplay/whisplayd/internal/board"
	"github.com/whisplay/whisplayd/internal/control"
	"github.com/whisplay/whisplayd/internal/mqttbridge"
	"github.com/whisplay/whisplayd/internal/server"
)

// wireButtons forwards button presses and releases to every control client
// and, when bridge is non-nil, to the MQTT events topic.
func wireButtons(b board.Board, srv *server.Server, bridge *mqttbridge.Bridge, l *log.Logger) {
	notify := func(event string) {
		l.Info("button event", "event", event)
		srv.Broadcast(control.EventLine(event))
		if bridge != nil {
			bridge.PublishEvent(event)
		}
	}
	b.OnButtonPress(func() { notify(control.EventButtonPressed) })
	b.OnButtonRelease(func() { notify(control.EventButtonReleased) })
}
