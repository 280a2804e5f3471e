package grbl_test

import (
	"testing"

	"github.com/jt05610/sandtable/grbl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCases = []struct {
	name   string
	line   string
	expect grbl.StatusUpdate
}{
	{
		name: "workPosition",
		line: "<Idle|WPos:-994.869,-321.861,0.000|Bf:15,128|FS:0,0>",
		expect: &grbl.Status{
			State:        "Idle",
			WorkPosition: &grbl.Position{X: -994.869, Y: -321.861},
			Buffer:       &grbl.Buffer{Planner: 15, Serial: 128},
		},
	},
	{
		name: "machinePosition",
		line: "<Alarm|MPos:0.000,0.000,0.000|F:0|WCO:0.000,0.000,-16.275>\n",
		expect: &grbl.Status{
			State:           "Alarm",
			MachinePosition: &grbl.Position{},
		},
	},
	{
		name: "twoAxis",
		line: "<Run|MPos:12.500,-3.000|Bf:4,64>",
		expect: &grbl.Status{
			State:           "Run",
			MachinePosition: &grbl.Position{X: 12.5, Y: -3},
			Buffer:          &grbl.Buffer{Planner: 4, Serial: 64},
		},
	},
	{
		name:   "ok",
		line:   "ok\n",
		expect: &grbl.Ack{},
	},
	{
		name:   "OK",
		line:   "OK\r\n",
		expect: &grbl.Ack{},
	},
	{
		name:   "error",
		line:   "error:20\n",
		expect: grbl.Error(20),
	},
	{
		name:   "alarm",
		line:   "ALARM:1\n",
		expect: grbl.Alarm(1),
	},
}

func TestParseLine(t *testing.T) {
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := grbl.ParseLine(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, got)
		})
	}
}

func TestParseLineMalformed(t *testing.T) {
	_, err := grbl.ParseLine("")
	assert.Error(t, err)

	got, err := grbl.ParseLine("<Idle|WPos:abc,def|Bf:1,2>")
	require.NoError(t, err)
	assert.Equal(t, &grbl.Status{State: "Idle", Buffer: &grbl.Buffer{Planner: 1, Serial: 2}}, got)

	got, err = grbl.ParseLine("<Run|WPos:1.000|MPos:3.000,4.000,0.000|FS:x,0>")
	require.NoError(t, err)
	assert.Equal(t, &grbl.Status{State: "Run", MachinePosition: &grbl.Position{X: 3, Y: 4}}, got)
}

func TestParsePosition(t *testing.T) {
	pos, ok := grbl.ParsePosition("<Idle|WPos:-994.869,-321.861,0.000|Bf:15,128|...>")
	require.True(t, ok)
	assert.Equal(t, -994.869, pos.X)
	assert.Equal(t, -321.861, pos.Y)

	pos, ok = grbl.ParsePosition("<Idle|MPos:1.000,2.000,0.000|WPos:3.000,4.000,0.000>")
	require.True(t, ok)
	assert.Equal(t, 3.0, pos.X, "WPos takes precedence")

	pos, ok = grbl.ParsePosition("<Idle|MPos:1.000,2.000,0.000|Bf:15,128>")
	require.True(t, ok)
	assert.Equal(t, grbl.Position{X: 1, Y: 2}, pos)

	_, ok = grbl.ParsePosition("<Idle|Bf:15,128>")
	assert.False(t, ok)
	_, ok = grbl.ParsePosition("ok")
	assert.False(t, ok)
	_, ok = grbl.ParsePosition("<Idle|WPos:x,y|Bf:15,128>")
	assert.False(t, ok)

	pos, ok = grbl.ParsePosition("<Idle|WPos:1.000,2.000,0.000|Bf:15,x>")
	require.True(t, ok, "a malformed Bf field does not hide WPos")
	assert.Equal(t, grbl.Position{X: 1, Y: 2}, pos)
}

func TestParseBuffer(t *testing.T) {
	buf, ok := grbl.ParseBuffer("<Idle|WPos:-994.869,-321.861,0.000|Bf:15,128|...>")
	require.True(t, ok)
	assert.Equal(t, grbl.Buffer{Planner: 15, Serial: 128}, buf)

	_, ok = grbl.ParseBuffer("<Idle|WPos:0.000,0.000,0.000>")
	assert.False(t, ok)

	buf, ok = grbl.ParseBuffer("<Idle|WPos:a,b,c|Bf:15,128>")
	require.True(t, ok, "a malformed WPos field does not hide Bf")
	assert.Equal(t, grbl.Buffer{Planner: 15, Serial: 128}, buf)
}

func TestLineClassifiers(t *testing.T) {
	assert.True(t, grbl.IsAck("ok"))
	assert.True(t, grbl.IsAck(" Ok \r"))
	assert.False(t, grbl.IsAck("okay"))
	assert.True(t, grbl.IsIdle("<Idle|WPos:0,0,0>"))
	assert.False(t, grbl.IsIdle("<Run|WPos:0,0,0>"))
	assert.True(t, grbl.HasPosition("<Run|MPos:0,0,0>"))
	assert.False(t, grbl.HasPosition("ok"))
}

func TestDeviceInfo(t *testing.T) {
	var info grbl.DeviceInfo
	assert.True(t, info.Inspect("Table: Dune Weaver Mini"))
	assert.True(t, info.Inspect("Drivers: TMC2209"))
	assert.True(t, info.Inspect("Version: 1.4"))
	assert.False(t, info.Inspect("Grbl 1.1h ['$' for help]"))
	assert.Equal(t, grbl.DeviceInfo{Table: "Dune Weaver Mini", Drivers: "TMC2209", Version: "1.4"}, info)
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "G1 G21 X35 Y-12.346 F350\n", grbl.MoveCommand(35, -12.3456, 350))
	assert.Equal(t, "G1 G21 X0.5 Y0 F1000\n", grbl.MoveCommand(0.5, 0, 1000))
	assert.Equal(t, "$J=G91 G21 Y-22 F350\n", grbl.JogCommand(-22, 350))
}
