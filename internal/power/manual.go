package power

import (
	"bufio"
	"fmt"
	"io"
)

// ManualPower is an Agent that prompts the operator to move the power
// switch by hand and waits for acknowledgement, for test benches that
// have no programmable supply.
type ManualPower struct {
	Out io.Writer
	In  *bufio.Reader
}

// NewManualPower wraps out/in as a ManualPower agent.
func NewManualPower(out io.Writer, in io.Reader) *ManualPower {
	return &ManualPower{Out: out, In: bufio.NewReader(in)}
}

func (m *ManualPower) prompt(instruction string) error {
	fmt.Fprintf(m.Out, "%s, then press Enter: ", instruction)
	_, err := m.In.ReadString('\n')
	return err
}

func (m *ManualPower) Off() error {
	return m.prompt("Remove power from the module (T30 and T15 both off)")
}

func (m *ManualPower) T30() error {
	return m.prompt("Apply T30 (always-on) power only")
}

func (m *ManualPower) T30T15() error {
	return m.prompt("Apply T30 and T15 (ignition) power")
}
