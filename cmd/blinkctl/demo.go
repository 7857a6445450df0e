package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/bluelink-stack/bluelink-go/pkg/driver"
	"github.com/bluelink-stack/bluelink-go/pkg/driver/sim"
)

// Standard GATT UUIDs used by the demo peripherals.
var (
	svcBattery    = uuid.MustParse("0000180f-0000-1000-8000-00805f9b34fb")
	chrBattery    = uuid.MustParse("00002a19-0000-1000-8000-00805f9b34fb")
	svcDeviceInfo = uuid.MustParse("0000180a-0000-1000-8000-00805f9b34fb")
	chrModelName  = uuid.MustParse("00002a24-0000-1000-8000-00805f9b34fb")
	svcHeartRate  = uuid.MustParse("0000180d-0000-1000-8000-00805f9b34fb")
	chrHeartRate  = uuid.MustParse("00002a37-0000-1000-8000-00805f9b34fb")
)

// newDemoDriver builds a sim backend with a couple of peripherals so the
// tool is usable without hardware. The heart-rate sensor emits a
// notification each second while subscribed.
func newDemoDriver() *sim.Sim {
	drv := sim.New()

	drv.AddPeripheral(sim.Peripheral{
		ID:   "C0:FF:EE:00:00:01",
		Name: "demo-sensor",
		Advertisement: driver.Advertisement{
			LocalName: "demo-sensor",
			RSSI:      -42,
			Groups:    []uuid.UUID{svcHeartRate},
		},
		Groups: []sim.Group{
			{
				UUID:    svcHeartRate,
				Primary: true,
				Items: []sim.Item{{
					UUID:       chrHeartRate,
					Properties: driver.PropertyRead | driver.PropertyNotify,
					Value:      []byte{0x00, 0x48},
				}},
			},
			{
				UUID:    svcBattery,
				Primary: true,
				Items: []sim.Item{{
					UUID:       chrBattery,
					Properties: driver.PropertyRead | driver.PropertyNotify,
					Value:      []byte{0x5f},
				}},
			},
		},
	})

	drv.AddPeripheral(sim.Peripheral{
		ID:   "C0:FF:EE:00:00:02",
		Name: "demo-actuator",
		Advertisement: driver.Advertisement{
			LocalName: "demo-actuator",
			RSSI:      -61,
		},
		Groups: []sim.Group{
			{
				UUID:    svcDeviceInfo,
				Primary: true,
				Items: []sim.Item{{
					UUID:       chrModelName,
					Properties: driver.PropertyRead | driver.PropertyWrite | driver.PropertyWriteWithoutResponse,
					Value:      []byte("blinkctl demo"),
				}},
			},
		},
	})

	go demoHeartbeat(drv)
	return drv
}

// demoHeartbeat pushes a varying heart-rate value once per second while
// someone is subscribed. Errors mean "not notifying"; just keep ticking.
func demoHeartbeat(drv *sim.Sim) {
	bpm := byte(0x48)
	for range time.Tick(time.Second) {
		bpm++
		if bpm > 0x5a {
			bpm = 0x48
		}
		_ = drv.Notify("C0:FF:EE:00:00:01", chrHeartRate, []byte{0x00, bpm})
	}
}
