package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/chazu/tagview/asset"
	"github.com/chazu/tagview/pkg/tfx"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm [flags] technique...",
	Short: "Disassemble the bytecode of techniques",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDisasm,
}

var evalCmd = &cobra.Command{
	Use:   "eval [flags] technique...",
	Short: "Evaluate technique bytecode and print the constant buffers",
	Long: `Eval runs every stage of each technique once against the given extern
state and prints the resulting constant buffers followed by any diagnostics.

  tagview eval 5EA8A380 --set frame.game_time=12.5 --global 3=1,0,0,1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringArray("set", nil, "set an extern field: kind.field=value (enables the extern)")
	evalCmd.Flags().StringArray("enable", nil, "enable an extern with catalog defaults")
	evalCmd.Flags().StringArray("global", nil, "set a global channel: index=x,y,z,w")
	evalCmd.Flags().StringArray("channel", nil, "set an object channel: hash=x,y,z,w")
}

func loadTechniques(cmd *cobra.Command, sess *session, args []string) ([]*asset.LoadedTechnique, error) {
	hashes, err := parseHashes(args)
	if err != nil {
		return nil, err
	}
	return sess.Manifest.NewPool().Techniques(cmd.Context(), sess.Loader, hashes)
}

func runDisasm(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	techniques, err := loadTechniques(cmd, sess, args)
	if err != nil {
		return err
	}
	for _, lt := range techniques {
		for _, st := range lt.Stages {
			name := fmt.Sprintf("%s %s", lt.Hash, st.Stage)
			if st.Program != nil && st.Program.Err != nil {
				color.New(color.FgRed).Fprintf(os.Stdout, "; %s: %v\n", name, st.Program.Err)
			}
			if err := tfx.DisassembleTo(os.Stdout, name, st.Ops(), st.Shader.Constants, !color.NoColor); err != nil {
				return err
			}
			fmt.Println()
		}
	}
	return nil
}

// evalState builds the extern state from --enable, --set, --global and
// --channel.
func evalState(cmd *cobra.Command) (*tfx.ExternStore, *tfx.GlobalChannels, map[uint32]mgl32.Vec4, error) {
	externs := tfx.NewExternStore()
	globals := tfx.NewGlobalChannels()
	channels := make(map[uint32]mgl32.Vec4)

	enable, _ := cmd.Flags().GetStringArray("enable")
	for _, name := range enable {
		kind, err := tfx.ParseExternKind(name)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := externs.Enable(kind); err != nil {
			return nil, nil, nil, err
		}
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	for _, s := range sets {
		if err := setExtern(externs, s); err != nil {
			return nil, nil, nil, fmt.Errorf("--set %s: %w", s, err)
		}
	}

	globalArgs, _ := cmd.Flags().GetStringArray("global")
	for _, s := range globalArgs {
		key, v, err := channelArg(s)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("--global %s: %w", s, err)
		}
		i, err := strconv.ParseUint(key, 0, 8)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("--global %s: index must be 0-%d", s, tfx.GlobalChannelCount-1)
		}
		globals.Set(uint8(i), v)
	}

	channelArgs, _ := cmd.Flags().GetStringArray("channel")
	for _, s := range channelArgs {
		key, v, err := channelArg(s)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("--channel %s: %w", s, err)
		}
		h, err := strconv.ParseUint(key, 0, 32)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("--channel %s: %w", s, err)
		}
		channels[uint32(h)] = v
	}
	return externs, globals, channels, nil
}

func setExtern(externs *tfx.ExternStore, s string) error {
	path, value, ok := strings.Cut(s, "=")
	if !ok {
		return errors.New("want kind.field=value")
	}
	kindName, fieldName, ok := strings.Cut(path, ".")
	if !ok {
		return errors.New("want kind.field=value")
	}
	kind, err := tfx.ParseExternKind(kindName)
	if err != nil {
		return err
	}
	var field *tfx.ExternField
	for _, f := range tfx.Fields(kind) {
		if f.Name == fieldName {
			field = &f
			break
		}
	}
	if field == nil {
		return fmt.Errorf("%w: %s->%s", tfx.ErrNoField, kind, fieldName)
	}
	v, err := tfx.ParseValue(field.Kind, value)
	if err != nil {
		return err
	}
	if err := externs.Enable(kind); err != nil {
		return err
	}
	return externs.Set(kind, fieldName, v)
}

func channelArg(s string) (string, mgl32.Vec4, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", mgl32.Vec4{}, errors.New("want key=x,y,z,w")
	}
	v, err := tfx.ParseValue(tfx.KindVec4, value)
	if err != nil {
		return "", mgl32.Vec4{}, err
	}
	return key, v.Vec4, nil
}

func runEval(cmd *cobra.Command, args []string) error {
	externs, globals, channels, err := evalState(cmd)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	techniques, err := loadTechniques(cmd, sess, args)
	if err != nil {
		return err
	}

	diags := tfx.NewDiagnostics()
	in := asset.Inputs{
		Externs:     externs,
		Channels:    channels,
		Globals:     globals,
		Diagnostics: diags,
	}
	header := color.New(color.FgHiBlack)
	for _, lt := range techniques {
		for _, st := range lt.Stages {
			out, err := st.Evaluate(in)
			if err != nil {
				return fmt.Errorf("technique %s: %w", lt.Hash, err)
			}
			header.Printf("; %s %s (%d elements)\n", lt.Hash, st.Stage, len(out))
			for i, v := range out {
				fmt.Printf("cb[%d] = %s\n", i, tfx.Vec4Value(v))
			}
		}
	}

	if n := diags.Len(); n > 0 {
		warn := color.New(color.FgYellow)
		warn.Fprintf(os.Stderr, "%d diagnostics:\n", n)
		for _, d := range diags.Snapshot() {
			fmt.Fprintf(os.Stderr, "  %s: %s (x%d)\n", d.Kind, d.Message, d.Count)
		}
	}
	return nil
}
