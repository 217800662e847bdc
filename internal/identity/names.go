package identity

var adjectives = []string{
	"Humble", "Brave", "Silent", "Rusty", "Shiny", "Clever", "Lucky", "Gentle",
	"Nimble", "Sturdy", "Curious", "Quiet", "Bold", "Swift", "Witty", "Calm",
	"Eager", "Fuzzy", "Jolly", "Keen", "Lively", "Mighty", "Noble", "Proud",
	"Quirky", "Rapid", "Sleepy", "Tidy", "Vivid", "Wise", "Zesty", "Cosmic",
}

var nouns = []string{
	"Acquittal", "Bolt", "Circuit", "Dynamo", "Engine", "Filament", "Gadget", "Hinge",
	"Inverter", "Joule", "Kernel", "Lever", "Magnet", "Nozzle", "Oscillator", "Piston",
	"Quartz", "Rotor", "Sprocket", "Turbine", "Valve", "Widget", "Gear", "Diode",
	"Relay", "Spindle", "Cog", "Socket", "Transistor", "Capacitor", "Ratchet", "Antenna",
}
