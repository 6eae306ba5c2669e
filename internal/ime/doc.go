// Package ime is the input orchestration core of cantokey: it turns key
// actions into edits of the host document, drives the composition engine,
// and derives the keyboard state the front-end renders.
//
// # Architecture Overview
//
// A front-end (the terminal driver, or the IBus engine on Linux) owns a
// TextSurface and a Controller. Every key becomes a KeyAction:
//
//	┌────────────────┐
//	│ Front-end      │  keysym / keystroke
//	│ (term, IBus)   │
//	└───────┬────────┘
//	        ↓ KeyAction
//	┌────────────────┐     ┌─────────────────────────────────────────┐
//	│ Controller     │────→│ CompositionEngine                       │
//	│                │     │ (ProcessChar, SelectCandidate, ...)     │
//	│ • smart space  │←────│                                         │
//	│ • auto-cap     │     └─────────────────────────────────────────┘
//	│ • contextual   │
//	│ • suggestions  │     ┌─────────────────────────────────────────┐
//	│                │────→│ TextSurface                             │
//	└───────┬────────┘     │ (Insert, DeleteBackward, SetMarkedText) │
//	        │              └───────────────────┬─────────────────────┘
//	        │  TextWillChange / TextDidChange  │
//	        │←─────────────────────────────────┘
//	        ↓ View
//	┌────────────────┐
//	│ Keyboard UI    │
//	│ candidates,    │
//	│ layout, mode   │
//	└────────────────┘
//
// # Self-Initiated Edits
//
// Hosts report every change, including the ones the controller makes
// itself. Edits made by the controller go through mutate, which marks the
// next TextDidChange as expected. Unexpected changes that alter the text
// before the caret reset the composition.
//
// # Contextual Behaviour
//
//	┌───────────────────┬──────────────────────────────────────────────────┐
//	│ Feature           │ Trigger                                          │
//	├───────────────────┼──────────────────────────────────────────────────┤
//	│ Smart space       │ Latin word committed at the end of the document  │
//	│ Space removal     │ Chinese text or punctuation after a smart space  │
//	│ Smart full stop   │ Double space after a word                        │
//	│ Auto-cap          │ Empty document, new line, after a terminal stop  │
//	│ Auto-suggestion   │ Digit or word before the caret, nothing composing│
//	└───────────────────┴──────────────────────────────────────────────────┘
//
// # Concurrency
//
// A Controller is single-threaded. The IBus engine serializes D-Bus calls
// with a mutex; the terminal driver runs everything on one goroutine.
package ime
