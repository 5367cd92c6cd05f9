// Package command binds named remote operations to typed request/reply exchanges.
//
// A Command[T] is declared once per instrument model with its wire name, enabled
// directions and a Codec converting between T and wire text:
//
//	var Voltage = command.NewFloat("VOLT", command.ReadWrite, command.WithDoc("output voltage"))
//
//	v, err := Voltage.Read(psu)    // sends "VOLT?", parses the reply
//	err = Voltage.Write(psu, 12.5) // sends "VOLT 12.5"
//
// IndexCommand[T] adds an index argument validated against a range, with optional
// symbolic names:
//
//	var Output = command.NewIndexBool("OUTP", command.ReadWrite, 1, 3,
//		command.WithIndexNames(map[string]int{"ch1": 1, "ch2": 2, "ch3": 3}))
//
//	on, err := Output.ReadKey(psu, "ch2") // sends "OUTP? 2"
//
// A disabled direction fails with ErrNotReadable or ErrNotWritable and an invalid
// index with *IndexError, both before touching the transport. Link and parse
// failures are reported as *transport.QueryError and *transport.SetError.
package command
