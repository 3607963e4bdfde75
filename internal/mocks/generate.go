package mocks

//go:generate mockery --name API --srcpkg github.com/ecogrid-lab/ecogrid-gateway/internal/auth --output ./auth --outpkg authmocks --with-expecter
//go:generate mockery --name SnapshotStore --srcpkg github.com/ecogrid-lab/ecogrid-gateway/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
