package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	parser "github.com/wreulicke/classfile-parser"

	"github.com/deepnoodle-ai/classweave/classfile"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect <file.class>",
	Short:   "Summarize a class file",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		info, err := inspectClass(data, parseOptions(viper.GetViper())...)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			out, err := getOutputJSON(info)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}
		printClassInfo(cmd.OutOrStdout(), info)
		return nil
	},
}

func init() {
	inspectCmd.Flags().Bool("json", false, "Print JSON")
}

type classInfo struct {
	Name       string       `json:"name"`
	Super      string       `json:"super,omitempty"`
	Version    string       `json:"version"`
	Interfaces []string     `json:"interfaces,omitempty"`
	PoolSize   int          `json:"pool_size"`
	Fields     []string     `json:"fields,omitempty"`
	Methods    []methodInfo `json:"methods"`
}

type methodInfo struct {
	Name         string `json:"name"`
	Descriptor   string `json:"descriptor"`
	Static       bool   `json:"static,omitempty"`
	MaxStack     int    `json:"max_stack,omitempty"`
	MaxLocals    int    `json:"max_locals,omitempty"`
	CodeLength   int    `json:"code_length,omitempty"`
	Instructions int    `json:"instructions,omitempty"`
	Branches     int    `json:"branches,omitempty"`
	Handlers     int    `json:"handlers,omitempty"`
}

// inspectClass describes a class. Header data comes from the reference
// parser, or from our own parse when the reference parser rejects an
// attribute it does not know; instruction statistics come from decoding
// each body.
func inspectClass(data []byte, opts ...classfile.ParseOption) (*classInfo, error) {
	c, err := classfile.Parse(data, opts...)
	if err != nil {
		return nil, err
	}
	cf, err := parser.New(bytes.NewReader(data)).Parse()
	if err != nil {
		if strings.HasPrefix(err.Error(), unknownAttribute) {
			return describeClass(c)
		}
		return nil, fmt.Errorf("reference parser: %w", err)
	}
	cp := cf.ConstantPool
	info := &classInfo{
		Version:  fmt.Sprintf("%d.%d", cf.MajorVersion, cf.MinorVersion),
		PoolSize: c.Pool.Len(),
	}
	if info.Name, err = cf.ThisClassName(); err != nil {
		return nil, err
	}
	if cf.SuperClass != 0 {
		if info.Super, err = cf.SuperClassName(); err != nil {
			return nil, err
		}
	}
	for _, idx := range cf.Interfaces {
		name, err := cp.GetClassName(idx)
		if err != nil {
			return nil, err
		}
		info.Interfaces = append(info.Interfaces, name)
	}
	for _, f := range cf.Fields {
		name, _ := f.Name(cp)
		desc, _ := f.Descriptor(cp)
		info.Fields = append(info.Fields, name+" "+desc)
	}
	for _, m := range cf.Methods {
		name, _ := m.Name(cp)
		desc, _ := m.Descriptor(cp)
		mi := methodInfo{Name: name, Descriptor: desc, Static: m.AccessFlags.Is(parser.ACC_STATIC)}
		if code := m.Code(); code != nil {
			mi.MaxStack = int(code.MaxStack)
			mi.MaxLocals = int(code.MaxLocals)
			mi.CodeLength = len(code.Codes)
		}
		if member := c.FindMethod(name, desc); member != nil {
			if err := addBodyStats(c, member, &mi); err != nil {
				return nil, err
			}
		}
		info.Methods = append(info.Methods, mi)
	}
	return info, nil
}

// describeClass builds the summary from c alone.
func describeClass(c *classfile.Class) (*classInfo, error) {
	info := &classInfo{
		Version:  fmt.Sprintf("%d.%d", c.Version.Major, c.Version.Minor),
		PoolSize: c.Pool.Len(),
	}
	var err error
	if info.Name, err = c.Name(); err != nil {
		return nil, err
	}
	if c.Super != 0 {
		if info.Super, err = c.SuperName(); err != nil {
			return nil, err
		}
	}
	for _, idx := range c.Interfaces {
		name, err := c.Pool.ClassNameAt(idx)
		if err != nil {
			return nil, err
		}
		info.Interfaces = append(info.Interfaces, name)
	}
	for _, f := range c.Fields {
		info.Fields = append(info.Fields, f.Name+" "+f.Descriptor)
	}
	for _, m := range c.Methods {
		mi := methodInfo{Name: m.Name, Descriptor: m.Descriptor, Static: m.IsStatic()}
		if code, ok := m.Attribute("Code"); ok && len(code.Data) >= 8 {
			mi.CodeLength = int(binary.BigEndian.Uint32(code.Data[4:8]))
		}
		if err := addBodyStats(c, m, &mi); err != nil {
			return nil, err
		}
		info.Methods = append(info.Methods, mi)
	}
	return info, nil
}

// addBodyStats fills the instruction statistics of a method with code.
func addBodyStats(c *classfile.Class, m *classfile.Member, mi *methodInfo) error {
	if !m.HasCode() {
		return nil
	}
	body, err := c.Body(m)
	if err != nil {
		return fmt.Errorf("method %s: %w", m.Key(), err)
	}
	stats := body.Stats()
	mi.Instructions = stats.InstructionCount
	mi.Branches = stats.BranchCount
	mi.Handlers = stats.HandlerCount
	if mi.MaxStack == 0 && mi.MaxLocals == 0 {
		mi.MaxStack = body.MaxStack()
		mi.MaxLocals = body.MaxLocals()
	}
	return nil
}

func getOutputJSON(v any) ([]byte, error) {
	if viper.GetBool("no-color") || !isTerminal(os.Stdout) {
		return json.MarshalIndent(v, "", "  ")
	}
	return prettyjson.Marshal(v)
}

func printClassInfo(w io.Writer, info *classInfo) {
	fmt.Fprintf(w, "%s %s (version %s, %d pool entries)\n", yellow("class"), info.Name, info.Version, info.PoolSize)
	if info.Super != "" {
		fmt.Fprintf(w, "  extends %s\n", info.Super)
	}
	for _, i := range info.Interfaces {
		fmt.Fprintf(w, "  implements %s\n", i)
	}
	for _, f := range info.Fields {
		fmt.Fprintf(w, "  field %s\n", f)
	}
	for _, m := range info.Methods {
		fmt.Fprintf(w, "  method %s%s", m.Name, m.Descriptor)
		if m.CodeLength > 0 {
			fmt.Fprintf(w, ": %d bytes, %d instructions, %d branches, %d handlers, stack %d, locals %d",
				m.CodeLength, m.Instructions, m.Branches, m.Handlers, m.MaxStack, m.MaxLocals)
		}
		fmt.Fprintln(w)
	}
}

