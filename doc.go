// Package apngdis splits an Animated PNG into standalone PNG frames.
//
// Every frame of the animation, plus the still image when the file has
// one, is written as an independent PNG named <prefix><NNN>.png. Frames
// carrying a frame control chunk also get a <prefix><NNN>.txt side file
// holding the frame delay as delay=<num>/<den>. Frames are not composited:
// each output holds the frame's own bitmap at the frame's own size.
//
// Ancillary chunks that stay valid for any frame (palette, transparency,
// colour space, safe-to-copy chunks) are carried into every output;
// animation chunks never are.
//
// Basic usage:
//
//	res, err := apngdis.DisassembleFile("anim.png", nil)
//
// Output goes through a Storage, so frames can be kept in memory:
//
//	store := apngdis.NewMemoryStorage()
//	res, err := apngdis.Disassemble(r, &apngdis.Options{Prefix: "f", Storage: store, Level: -1})
package apngdis
