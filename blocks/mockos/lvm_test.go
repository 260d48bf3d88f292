package mockos_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	blocks "machinerun.io/blockconv"
	"machinerun.io/blockconv/blocks/mockos"
)

func TestPV(t *testing.T) {
	Convey("testing lvm PVs", t, func() {
		lvm := mockos.LVM("testdata/vg_fixture.json")
		So(lvm, ShouldNotBeNil)

		pvs, err := lvm.ScanPVs(nil)
		So(err, ShouldBeNil)
		So(pvs, ShouldNotBeEmpty)

		So(lvm.HasPV("/dev/vdb"), ShouldBeTrue)
		So(lvm.HasPV("/dev/nope"), ShouldBeFalse)

		err = lvm.CreatePVWithUUID("/dev/vdb", "some-uuid", "")
		So(err, ShouldBeError)

		err = lvm.CreatePVWithUUID("/dev/vdc", "new-uuid", "")
		So(err, ShouldBeNil)
		So(lvm.HasPV("/dev/vdc"), ShouldBeTrue)
	})
}

func TestVG(t *testing.T) {
	Convey("testing lvm VGs", t, func() {
		lvm := mockos.LVM("testdata/vg_fixture.json")

		So(lvm.HasVG("data"), ShouldBeTrue)
		So(lvm.HasVG("nope"), ShouldBeFalse)

		vgs, err := lvm.ScanVGs(nil)
		So(err, ShouldBeNil)
		So(vgs, ShouldNotBeEmpty)

		So(lvm.ExtendVG("nope", blocks.PV{Name: "x"}), ShouldBeError)

		err = lvm.ExtendVG("data", blocks.PV{Name: "/dev/vdc", Size: 1 << 30, FreeSize: 1 << 30})
		So(err, ShouldBeNil)

		So(lvm.RemoveVG("nope"), ShouldBeError)
		So(lvm.RemoveVG("data"), ShouldBeNil)
		So(lvm.HasVG("data"), ShouldBeFalse)
	})
}

func TestLV(t *testing.T) {
	Convey("testing lvm LVs", t, func() {
		lvm := mockos.LVM("testdata/vg_fixture.json")

		_, err := lvm.CreateLV("data", "root", 1<<30, blocks.THICK)
		So(err, ShouldBeNil)

		_, err = lvm.CreateLV("data", "root", 1<<30, blocks.THICK)
		So(err, ShouldBeError)

		err = lvm.ExtendLV("data", "root", 2<<30)
		So(err, ShouldBeNil)

		err = lvm.ExtendLV("data", "root", 1<<20)
		So(err, ShouldBeError)

		err = lvm.RemoveLV("data", "root")
		So(err, ShouldBeNil)

		err = lvm.RemoveLV("data", "root")
		So(err, ShouldBeError)
	})
}

func TestRestoreAndDumpVG(t *testing.T) {
	Convey("testing RestoreVG/DumpVG roundtrip through the parser", t, func() {
		lvm := mockos.LVM("testdata/vg_fixture.json")

		layout, err := blocks.NewLvmLayout(64 * blocks.PeSize)
		So(err, ShouldBeNil)

		cfg := blocks.NewSynthesizedVgConfig("vg.synth", "lv.synth", "pv-uuid", "vg-uuid", layout)
		text := blocks.RenderVgConfig(cfg)

		So(lvm.RestoreVG("vg.synth", text), ShouldBeNil)
		So(lvm.HasVG("vg.synth"), ShouldBeTrue)

		dumped, err := lvm.DumpVG("vg.synth")
		So(err, ShouldBeNil)
		So(dumped, ShouldEqual, text)

		_, err = lvm.DumpVG("never-restored")
		So(err, ShouldBeError)
	})
}
