//go:build !tinygo && cgo

package rmaux

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/raymarch"
	"github.com/soypat/raymarch/glbuild"
)

const vertexSrc = glbuild.VersionStr + `in vec2 aPos;
void main() {
    gl_Position = vec4(aPos, 0.0, 1.0);
}
` + "\x00"

// uniforms holds the locations of the fragment template's uniforms.
type uniforms struct {
	time, resolution, shadows, renderDistance, minHitDist, maxSteps int32
	cameraPos, cameraDir, cameraFovTan, sunDir                      int32
}

func ui(sc *raymarch.Scene, cfg UIConfig) error {
	var fragSrc bytes.Buffer
	_, err := sc.WriteShader(&fragSrc)
	if err != nil {
		return err
	}
	fragSrc.WriteByte(0)

	window, term, err := startGLFW(cfg.Width, cfg.Height, sc.DisplayName())
	if err != nil {
		return err
	}
	defer term()

	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   vertexSrc,
		Fragment: fragSrc.String(),
	})
	if err != nil {
		return fmt.Errorf("%s\n\n%w", fragSrc.String(), err)
	}
	defer prog.Delete()
	prog.Bind()
	loc, err := uniformLocations(prog)
	if err != nil {
		return err
	}

	// Quad covering the screen.
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)
	var vbo uint32
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	vertices := []float32{
		-1.0, -1.0,
		1.0, -1.0,
		-1.0, 1.0,
		-1.0, 1.0,
		1.0, -1.0,
		1.0, 1.0,
	}
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(vertices), gl.Ptr(vertices), gl.STATIC_DRAW)
	posAttrib, err := prog.AttribLocation("aPos\x00")
	if err != nil {
		return err
	}
	gl.EnableVertexAttribArray(posAttrib)
	gl.VertexAttribPointer(posAttrib, 2, gl.FLOAT, false, 0, gl.PtrOffset(0))

	cam := newOrbit(sc.SDF().Bounds())
	var (
		lastMouseX, lastMouseY float64
		firstMouseMove         = true
		isMousePressed         = false
		refresh                = true
	)
	window.SetCursorPosCallback(func(w *glfw.Window, xpos float64, ypos float64) {
		if !isMousePressed {
			return
		}
		if firstMouseMove {
			lastMouseX, lastMouseY = xpos, ypos
			firstMouseMove = false
		}
		cam.drag(float32(xpos-lastMouseX), float32(ypos-lastMouseY))
		lastMouseX, lastMouseY = xpos, ypos
		refresh = true
	})
	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		cam.zoom(float32(yoff))
		refresh = true
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		switch action {
		case glfw.Press:
			isMousePressed = true
			firstMouseMove = true
			window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
		case glfw.Release:
			isMousePressed = false
			window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		}
	})
	window.SetSizeCallback(func(w *glfw.Window, width, height int) {
		gl.Viewport(0, 0, int32(width), int32(height))
		refresh = true
	})

	rcfg := cfg.Raymarch
	ctx := cfg.Context
	start := glfw.GetTime()
	for !window.ShouldClose() {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if refresh {
			refresh = false
			width, height := window.GetFramebufferSize()
			c := cam.camera()
			prog.Bind()
			gl.Uniform1f(loc.time, float32(glfw.GetTime()-start))
			gl.Uniform2f(loc.resolution, float32(width), float32(height))
			gl.Uniform1i(loc.shadows, boolToInt(rcfg.Shadows))
			gl.Uniform1f(loc.renderDistance, rcfg.RenderDistance)
			gl.Uniform1f(loc.minHitDist, rcfg.MinHitDist)
			gl.Uniform1i(loc.maxSteps, int32(rcfg.MaxSteps))
			gl.Uniform3f(loc.cameraPos, c.Pos.X, c.Pos.Y, c.Pos.Z)
			gl.Uniform3f(loc.cameraDir, c.Dir.X, c.Dir.Y, c.Dir.Z)
			gl.Uniform1f(loc.cameraFovTan, c.FovTan)
			gl.Uniform3f(loc.sunDir, cfg.SunDir.X, cfg.SunDir.Y, cfg.SunDir.Z)

			gl.ClearColor(0.0, 0.0, 0.0, 1.0)
			gl.Clear(gl.COLOR_BUFFER_BIT)
			gl.BindVertexArray(vao)
			gl.DrawArrays(gl.TRIANGLES, 0, 6)
			window.SwapBuffers()
		}
		time.Sleep(time.Second / 60)
		glfw.PollEvents()
	}
	return nil
}

func uniformLocations(prog glgl.Program) (loc uniforms, err error) {
	for _, u := range []struct {
		name string
		dst  *int32
	}{
		{glbuild.UniformResolution, &loc.resolution},
		{glbuild.UniformShadows, &loc.shadows},
		{glbuild.UniformRenderDistance, &loc.renderDistance},
		{glbuild.UniformMinHitDist, &loc.minHitDist},
		{glbuild.UniformMaxSteps, &loc.maxSteps},
		{glbuild.UniformCameraPos, &loc.cameraPos},
		{glbuild.UniformCameraDir, &loc.cameraDir},
		{glbuild.UniformCameraFovTan, &loc.cameraFovTan},
		{glbuild.UniformSunDir, &loc.sunDir},
	} {
		*u.dst, err = prog.UniformLocation(u.name + "\x00")
		if err != nil {
			return loc, fmt.Errorf("uniform %s: %w", u.name, err)
		}
	}
	// The template does not read the time uniform so drivers may optimize it out.
	loc.time, err = prog.UniformLocation(glbuild.UniformTime + "\x00")
	if err != nil {
		loc.time = -1
	}
	return loc, nil
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func startGLFW(width, height int, title string) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err = glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	return window, glfw.Terminate, nil
}
