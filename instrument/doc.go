// Package instrument models instruments as trees of components sharing one transport.
//
// A Class declares the commands and methods of a component type once:
//
//	var psuClass = instrument.NewClass("psu", nil).
//		AddCommands(Identify, Mode, Voltage).
//		AddMethods(instrument.Method{Name: "beep", Doc: "sound the buzzer"}).
//		Exclude("*TST")
//
// An Instrument is the root component; it connects a transport of one of its offered
// kinds and attaches it to every descendant:
//
//	psu, _ := instrument.New("psu", psuClass, instrument.WithIDString("PSU-3000"))
//	err := psu.ConnectWithParameterString(ctx, "tcpip:10.0.0.5:admin:secret:23")
//	id, err := psu.CheckID()
//	snapshot, err := psu.CaptureCommands(false)
package instrument
