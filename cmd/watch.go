package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/haulboard/config"
	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/infra/logger"
	"github.com/kilianp07/haulboard/infra/mqtt"
	"github.com/kilianp07/haulboard/infra/natsbus"
)

var watchTopics string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow board events on the configured remote bus",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchTopics, "topics", "slot,driver,truck,assignment,transport,cut,location", "comma separated event kinds")
	rootCmd.AddCommand(watchCmd)
}

type subscriber interface {
	Subscribe(topics []string, fn func(topic string, payload []byte)) error
	Close() error
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var sub subscriber
	switch cfg.Notify.Backend {
	case config.BackendMQTT:
		mc := cfg.Notify.MQTT
		mc.ClientID = mc.ClientID + "-watch"
		sub, err = mqtt.NewPublisher(mc)
	case config.BackendNATS:
		sub, err = natsbus.Connect(cfg.Notify.NATS)
	default:
		return fmt.Errorf("notify backend %q has no remote bus to watch", cfg.Notify.Backend)
	}
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	log := logger.New("watch")
	view := notify.NewView()
	out := cmd.OutOrStdout()
	var topics []string
	for _, t := range strings.Split(watchTopics, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	err = sub.Subscribe(topics, func(topic string, payload []byte) {
		e, err := notify.Decode(payload)
		if err != nil {
			log.Warnf("decode event on %s: %v", topic, err)
			return
		}
		view.Apply(e)
		_, _ = fmt.Fprintf(out, "%s %-22s %s\n", e.Time.Format("15:04:05"), e.Name, describe(view, e))
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// describe renders the replica's reconciled state of the entity e touched,
// which may differ from e when events arrive out of order.
func describe(v *notify.View, e notify.Event) string {
	slotLine := func(id string) string {
		sl, ok := v.Slot(id)
		if !ok {
			return "slot " + id + " removed"
		}
		return fmt.Sprintf("slot %d %s driver=%s truck=%s", sl.Number, sl.Day.Format(model.DayLayout),
			orDash(model.StrVal(sl.DriverID)), orDash(model.StrVal(sl.TruckID)))
	}
	switch d := e.Data.(type) {
	case model.PlanningSlot:
		return slotLine(d.ID)
	case notify.ResourceAssigned:
		return slotLine(d.Slot.ID)
	case notify.SlotRemoved:
		return fmt.Sprintf("slot %s removed, unassigned [%s]", d.SlotID, strings.Join(d.Unassigned, ","))
	case notify.SlotsOrder:
		parts := make([]string, 0, len(d.Slots))
		for _, s := range d.Slots {
			if sl, ok := v.Slot(s.ID); ok {
				parts = append(parts, fmt.Sprintf("%d:%d", sl.Number, sl.Order))
			}
		}
		return fmt.Sprintf("%s order [%s]", d.Date.Format(model.DayLayout), strings.Join(parts, " "))
	case model.AssignedTransport:
		a := d.Assignment
		if a.SlotID == nil {
			return fmt.Sprintf("%s unassigned on %s", d.Transport.ID, a.Date.Format(model.DayLayout))
		}
		return fmt.Sprintf("slot %s %s [%s]", *a.SlotID, a.Date.Format(model.DayLayout),
			strings.Join(v.SlotTransports(*a.SlotID, a.Date), ","))
	case model.Transport:
		return transportLine(v, d.ID)
	case notify.Cancellation:
		return transportLine(v, d.Transport.ID)
	case notify.ETAUpdate:
		return transportLine(v, d.TransportID)
	case notify.CutState:
		return transportLine(v, d.Transport.ID)
	}
	return e.ID
}

func transportLine(v *notify.View, id string) string {
	t, ok := v.Transport(id)
	if !ok {
		return id
	}
	line := fmt.Sprintf("%s %s status=%s sent=%t", t.ID, t.OrderNumber, t.Status, t.SentToDriver)
	if t.ETA != nil {
		line += " eta=" + t.ETA.Format("15:04")
	}
	if t.IsCut {
		line += " cut"
	}
	return line
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
