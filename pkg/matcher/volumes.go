package matcher

// matchPersistentVolume locates an existing reservation to reuse, or a
// fresh MOUNT-type disk to consume, for a resident run-spec's volumes
// (spec.md section 4.1 step 5). principal scopes reuse to reservations this
// framework instance made; appBase names the volume set (one reservation
// per declared PodVolume/app instance slot).
func matchPersistentVolume(offer Offer, appBase string, principal string) ([]PersistentVolumeSelection, bool, string) {
	for _, r := range offer.Resources {
		if r.Disk == nil {
			continue
		}
		if r.Reserved && r.Disk.PersistenceID != "" && r.ReservationPrincipal == principal {
			return []PersistentVolumeSelection{{
				VolumeName:    appBase,
				PersistenceID: r.Disk.PersistenceID,
				Role:          r.Role,
				Reused:        true,
			}}, true, ""
		}
	}
	for _, r := range offer.Resources {
		if r.Disk != nil && r.Disk.Type == DiskSourceMount && !r.Reserved {
			return []PersistentVolumeSelection{{
				VolumeName: appBase,
				Role:       r.Role,
				Reused:     false,
			}}, true, ""
		}
	}
	return nil, false, "no reusable reservation or free MOUNT disk available for resident volume"
}
