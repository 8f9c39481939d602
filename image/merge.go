package image

import (
	"fmt"

	"github.com/unodos/unoimg/bootrecord"
)

// MergeBootCode returns a copy of fsImage carrying the boot code of
// osImage: the OS boot sector, grafted onto the BPB of the file system's
// boot sector, and the OS sectors 1 to codeSectors-1 in the file system's
// reserved sectors. The file system's geometry, FAT, directory and data are
// left untouched, so the code sectors must fit the reserved area.
func MergeBootCode(fsImage, osImage []byte, codeSectors int) ([]byte, error) {
	if len(fsImage) < bootrecord.SectorSize {
		return nil, fmt.Errorf("file system image: %w", bootrecord.ErrShortSector)
	}
	bpb, err := bootrecord.Parse(fsImage[:bootrecord.SectorSize])
	if err != nil {
		return nil, fmt.Errorf("file system image: %w", err)
	}
	if codeSectors < 1 {
		return nil, &LayoutError{Region: "boot code", Reason: fmt.Sprintf("%d code sectors, need at least the boot sector", codeSectors)}
	}
	if codeSectors > int(bpb.ReservedSectors) {
		return nil, &LayoutError{Region: "boot code", Reason: fmt.Sprintf(
			"%d code sectors would overwrite the FAT starting at sector %d", codeSectors, bpb.ReservedSectors)}
	}
	ss := int(bpb.BytesPerSector)
	n := codeSectors * ss
	if len(osImage) < n {
		return nil, &LayoutError{Region: "boot code", Reason: fmt.Sprintf("OS image holds %d bytes, %d code sectors need %d", len(osImage), codeSectors, n)}
	}
	if len(fsImage) < n {
		return nil, &LayoutError{Region: "boot code", Reason: fmt.Sprintf("file system image holds %d bytes, %d code sectors need %d", len(fsImage), codeSectors, n)}
	}

	boot, err := bootrecord.Graft(osImage[:bootrecord.SectorSize], fsImage[:bootrecord.SectorSize])
	if err != nil {
		return nil, err
	}
	merged := append([]byte(nil), fsImage...)
	copy(merged[:bootrecord.SectorSize], boot)
	copy(merged[bootrecord.SectorSize:n], osImage[bootrecord.SectorSize:n])
	return merged, nil
}
