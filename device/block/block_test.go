package block

import (
	"bytes"
	"testing"
)

func TestRoles(t *testing.T) {
	defer func() {
		_ = SetRole(RoleSwap, nil)
	}()

	if ByRole(RoleSwap) != nil {
		t.Fatal("expected no swap device to be registered")
	}

	dev := NewMemDevice("swap", 8)
	if err := SetRole(RoleSwap, dev); err != nil {
		t.Fatal(err)
	}

	if got := ByRole(RoleSwap); got != dev {
		t.Fatalf("expected ByRole to return the registered device; got %v", got)
	}

	if err := SetRole(roleCount, dev); err != errUnknownRole {
		t.Fatalf("expected errUnknownRole; got %v", err)
	}

	if ByRole(roleCount) != nil {
		t.Fatal("expected ByRole to return nil for an unknown role")
	}

	for role, exp := range map[Role]string{RoleFilesys: "filesys", RoleScratch: "scratch", RoleSwap: "swap", roleCount: "unknown"} {
		if got := role.String(); got != exp {
			t.Errorf("expected role %d to stringify as %q; got %q", role, exp, got)
		}
	}
}

func testDeviceRoundTrip(t *testing.T, dev Device) {
	var (
		wbuf = make([]byte, SectorSize)
		rbuf = make([]byte, SectorSize)
	)

	for sector := Sector(0); sector < dev.SectorCount(); sector++ {
		for i := range wbuf {
			wbuf[i] = byte(int(sector) + i)
		}
		if err := dev.WriteSector(sector, wbuf); err != nil {
			t.Fatalf("sector %d: %v", sector, err)
		}
	}

	for sector := Sector(0); sector < dev.SectorCount(); sector++ {
		for i := range wbuf {
			wbuf[i] = byte(int(sector) + i)
		}
		if err := dev.ReadSector(sector, rbuf); err != nil {
			t.Fatalf("sector %d: %v", sector, err)
		}
		if !bytes.Equal(rbuf, wbuf) {
			t.Fatalf("sector %d: read back data does not match written data", sector)
		}
	}

	specs := []struct {
		sector Sector
		buf    []byte
		expErr interface{}
	}{
		{dev.SectorCount(), rbuf, errSectorOutOfRange},
		{0, rbuf[:10], errBadBufferSize},
		{0, make([]byte, SectorSize+1), errBadBufferSize},
	}

	for specIndex, spec := range specs {
		if err := dev.ReadSector(spec.sector, spec.buf); err != spec.expErr {
			t.Errorf("[spec %d] expected ReadSector error %v; got %v", specIndex, spec.expErr, err)
		}
		if err := dev.WriteSector(spec.sector, spec.buf); err != spec.expErr {
			t.Errorf("[spec %d] expected WriteSector error %v; got %v", specIndex, spec.expErr, err)
		}
	}
}

func TestMemDevice(t *testing.T) {
	dev := NewMemDevice("mem", 16)

	var buf bytes.Buffer
	if err := dev.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}
	if exp, got := "mem: 16 sectors (8 KB, memory)\n", buf.String(); got != exp {
		t.Fatalf("expected init banner %q; got %q", exp, got)
	}

	testDeviceRoundTrip(t, dev)
}
