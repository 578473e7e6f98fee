// Package wizard implements the interactive setup wizard for dantescan.
//
// The wizard has two screens. The first lists the usable host interfaces,
// with the role SuggestRoles proposes for each, plus an "All interfaces"
// entry that clears the preference. The second asks for the number of
// seconds a one-shot scan collects devices.
//
// On completion the choices are written into the config.Preferences passed
// to Run; saving the registry is left to the caller.
package wizard
