package surface

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	text "github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ehallam/gmassist/internal/display"
)

const (
	overlayFontSize = 22
	overlayPadding  = 12
	overlayLineGap  = 6
)

// condition marker colors keyed by combatant color tag.
var tagColors = map[string]color.RGBA{
	"red":    {R: 0xd0, G: 0x45, B: 0x45, A: 0xff},
	"green":  {R: 0x4f, G: 0xa5, B: 0x5b, A: 0xff},
	"blue":   {R: 0x46, G: 0x7b, B: 0xd0, A: 0xff},
	"yellow": {R: 0xd8, G: 0xc0, B: 0x3f, A: 0xff},
	"purple": {R: 0x9a, G: 0x5f, B: 0xc0, A: 0xff},
	"orange": {R: 0xd8, G: 0x8a, B: 0x3f, A: 0xff},
}

// App renders the replicated display state. It implements ebiten.Game.
type App struct {
	ctx     context.Context
	session *Session
	cache   *imageCache
	face    *text.GoTextFace
}

// NewApp builds the renderer around a live session. Cancelling ctx (the
// process received a shutdown signal) ends the render loop on the next
// frame.
func NewApp(ctx context.Context, session *Session) (*App, error) {
	source, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		return nil, fmt.Errorf("parse overlay font: %w", err)
	}
	return &App{
		ctx:     ctx,
		session: session,
		cache:   newImageCache(),
		face:    &text.GoTextFace{Source: source, Size: overlayFontSize},
	}, nil
}

// Run opens the player window and blocks until the session ends. A
// controller-requested terminate returns nil; transport failure returns the
// underlying error.
func (a *App) Run() error {
	ebiten.SetWindowTitle("GM Assistant Player View")
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetScreenClearedEveryFrame(true)

	err := ebiten.RunGame(a)
	_ = a.session.Close()
	return err
}

// Update implements ebiten.Game.
func (a *App) Update() error {
	if a.ctx.Err() != nil {
		return ebiten.Termination
	}
	if a.session.Terminated() {
		return ebiten.Termination
	}
	if err := a.session.Err(); err != nil {
		return fmt.Errorf("state channel lost: %w", err)
	}
	if a.session.TakeBringToFront() {
		// Raising above other apps is platform policy; un-minimizing and
		// asking for attention is the portable part.
		ebiten.RestoreWindow()
	}
	return nil
}

// Draw implements ebiten.Game.
func (a *App) Draw(screen *ebiten.Image) {
	state := a.session.Replica().State()
	if !a.session.Replica().HasBaseline() {
		a.drawCenteredText(screen, "Waiting for the game master...")
		return
	}

	if state.ActiveImageRef == "" {
		a.drawCenteredText(screen, "No image selected")
		return
	}

	img, err := a.cache.get(state.ActiveImageRef)
	if err != nil {
		a.drawCenteredText(screen, "Could not load image")
		log.Printf("load %s: %v", state.ActiveImageRef, err)
		return
	}
	if img != nil {
		a.drawFitted(screen, img)
	}

	if state.OverlayVisible {
		a.drawOverlay(screen, state)
	}
}

// Layout implements ebiten.Game. The surface renders at window resolution.
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// drawFitted scales the image to fit the screen preserving aspect ratio.
func (a *App) drawFitted(screen, img *ebiten.Image) {
	sw, sh := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	iw, ih := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	if iw <= 0 || ih <= 0 {
		return
	}

	scale := sw / iw
	if s := sh / ih; s < scale {
		scale = s
	}
	op := &ebiten.DrawImageOptions{Filter: ebiten.FilterLinear}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate((sw-iw*scale)/2, (sh-ih*scale)/2)
	screen.DrawImage(img, op)
}

func (a *App) drawCenteredText(screen *ebiten.Image, message string) {
	sw, sh := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	w, h := text.Measure(message, a.face, 0)

	op := &text.DrawOptions{}
	op.GeoM.Translate((sw-w)/2, (sh-h)/2)
	op.ColorScale.ScaleWithColor(color.RGBA{R: 0xb8, G: 0xb8, B: 0xb8, A: 0xff})
	text.Draw(screen, message, a.face, op)
}

// drawOverlay renders the initiative panel at the normalized geometry from
// the controller.
func (a *App) drawOverlay(screen *ebiten.Image, state display.State) {
	sw, sh := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	geometry := state.Overlay

	lines := make([]string, 0, len(state.Initiative.Combatants)+1)
	lines = append(lines, fmt.Sprintf("Round %d", state.Initiative.Round))
	for _, combatant := range state.Initiative.Combatants {
		line := combatant.Name
		if combatant.Conditions > 0 {
			line = fmt.Sprintf("%s (%d)", combatant.Name, combatant.Conditions)
		}
		lines = append(lines, line)
	}

	lineHeight := a.face.Size * geometry.ScaleY
	face := a.face
	if geometry.ScaleY != 1 {
		face = &text.GoTextFace{Source: a.face.Source, Size: a.face.Size * geometry.ScaleY}
	}

	var maxWidth float64
	for _, line := range lines {
		if w, _ := text.Measure(line, face, 0); w > maxWidth {
			maxWidth = w
		}
	}

	padding := overlayPadding * geometry.ScaleX
	swatch := lineHeight * 0.5
	panelW := float32(maxWidth + swatch + 3*padding)
	panelH := float32(float64(len(lines))*(lineHeight+overlayLineGap) + 2*padding)
	panelX := float32(geometry.X * sw)
	panelY := float32(geometry.Y * sh)

	vector.DrawFilledRect(screen, panelX, panelY, panelW, panelH,
		color.RGBA{A: 0xb0}, false)

	y := float64(panelY) + padding
	x := float64(panelX) + padding
	for i, line := range lines {
		if i > 0 {
			combatant := state.Initiative.Combatants[i-1]
			if tagColor, ok := tagColors[combatant.ColorTag]; ok {
				vector.DrawFilledRect(screen, float32(x), float32(y+lineHeight*0.3),
					float32(swatch), float32(swatch), tagColor, false)
			}
		}
		op := &text.DrawOptions{}
		op.GeoM.Translate(x+swatch+padding, y)
		op.ColorScale.ScaleWithColor(color.White)
		text.Draw(screen, line, face, op)
		y += lineHeight + overlayLineGap
	}
}
